package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dcvt/mindex/config"
)

// runEnv resolves the mailbox placement environment variables and prints
// them. mindexctl is the only place in this module that calls os.Getenv;
// every other package takes a config.Config passed in explicitly.
func runEnv(_ []string, out io.Writer) error {
	cfg := config.Load(os.Getenv)

	fmt.Fprintf(out, "MAIL=%s\n", cfg.Env.Mail)
	fmt.Fprintf(out, "MAIL_LOCATION=%s\n", cfg.Env.MailLocation)
	fmt.Fprintf(out, "USER=%s\n", cfg.Env.User)
	fmt.Fprintf(out, "HOME=%s\n", cfg.Env.Home)
	fmt.Fprintf(out, "MAIL_PLUGINS=%s\n", cfg.Env.MailPlugins)
	fmt.Fprintf(out, "DEBUG=%t\n", cfg.Env.Debug)

	return nil
}
