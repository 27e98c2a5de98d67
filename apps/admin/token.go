package main

import (
	"context"
	"fmt"

	echoapi "github.com/trezcool/babillard/apps/api/echo"
	"github.com/trezcool/babillard/core"
)

func (cli *commandLine) token(id string) error {
	usr, err := cli.usrSvc.Get(context.Background(), id)
	if err != nil {
		return err
	}
	claims := echoapi.NewClaims(core.Actor{ID: usr.ID, Role: usr.Role}, cli.conf)
	token, err := echoapi.GenerateToken(claims, cli.conf.SecretKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
