// Command popclient-example prints the message count of a mailbox and
// its first message over POP3, for manual testing against a real server.
package main

import (
	"flag"
	"fmt"
	"log"

	pop3 "github.com/regnull/asyncpop"
)

func main() {
	addr := flag.String("addr", "localhost:995", "host:port of the POP3 server")
	user := flag.String("user", "", "mailbox username")
	pass := flag.String("pass", "", "mailbox password")
	plain := flag.Bool("plain", false, "use a plain TCP connection instead of TLS")
	flag.Parse()

	if *user == "" || *pass == "" {
		log.Fatal("-user and -pass are required")
	}

	var sess *pop3.Session
	var err error
	if *plain {
		sess, err = pop3.Dial(*addr)
	} else {
		sess, err = pop3.DialTLS(*addr)
	}
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer sess.Quit()

	if err := sess.Login(*user, *pass); err != nil {
		log.Fatalf("login: %v", err)
	}

	stat, err := sess.Stat()
	if err != nil {
		log.Fatalf("stat: %v", err)
	}
	count, _ := stat.Count.Int()
	fmt.Printf("%d messages in mailbox\n", count)

	if count == 0 {
		return
	}

	body, err := sess.Retr(1)
	if err != nil {
		log.Fatalf("retr: %v", err)
	}
	fmt.Printf("message 1 (%d bytes):\n%s\n", len(body), body)
}
