// Command hashpass prints the bcrypt hash of an operator password, for use
// as ADMIN_PASS_HASH. The password is read from the first argument or, when
// absent, from the first line of stdin.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vbonduro/segnalazioni/internal/auth"
)

func main() {
	pass, err := readPassword()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashpass: %v\n", err)
		os.Exit(1)
	}

	hash, err := auth.Hash(pass)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashpass: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func readPassword() (string, error) {
	if len(os.Args) > 1 {
		return os.Args[1], nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	pass := strings.TrimRight(line, "\r\n")
	if pass == "" {
		return "", errors.New("empty password")
	}
	return pass, nil
}
