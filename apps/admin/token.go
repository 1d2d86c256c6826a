package main

import (
	"fmt"
	"time"

	"github.com/trezcool/schoolerp/core/user"
)

func (cli *commandLine) token(subject, role string, ttl time.Duration) error {
	var roles []string
	if role != "" {
		roles = []string{role}
	}
	token, err := user.GenerateToken(cli.conf, user.User{ID: subject, Roles: roles}, ttl)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cli.out, token)
	return nil
}
