package main

import (
	"context"
	"fmt"

	"github.com/trezcool/babillard/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(id, name, role string) error {
	usr, err := cli.usrSvc.Add(context.Background(), user.NewUser{ID: id, Name: name, Role: role})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s (%s) saved\n", usr.ID, usr.Role)
	return nil
}
