// Package main prints the bcrypt hash of a password so accounts can be seeded directly
// into the users table without going through the registration endpoint.
//
// Usage:
//
//	hash [-cost 10] <password>
//	echo -n secret | hash -stdin
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/task-manager/task-manager/internal/auth"
)

func main() {
	cost := flag.Int("cost", 10, "bcrypt work factor")
	stdin := flag.Bool("stdin", false, "read the password from standard input")
	flag.Parse()

	var password string
	switch {
	case *stdin:
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "failed to read password:", err)
			os.Exit(1)
		}
		password = strings.TrimRight(line, "\r\n")
	case flag.NArg() == 1:
		password = flag.Arg(0)
	default:
		fmt.Fprintln(os.Stderr, "usage: hash [-cost N] <password> | hash -stdin")
		os.Exit(2)
	}

	if len(password) < auth.MinPasswordLength {
		fmt.Fprintf(os.Stderr, "password must be at least %d characters\n", auth.MinPasswordLength)
		os.Exit(1)
	}

	hash, err := auth.HashPassword(password, *cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
