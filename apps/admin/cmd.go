package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/notification"
	"github.com/trezcool/babillard/core/user"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db       *sql.DB
	conf     *core.Config
	out      io.Writer
	usrSvc   *user.Service
	notifSvc *notification.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)")
	fmt.Fprintln(cli.out, "  adduser -id ID -name NAME -role ROLE - add or refresh a user of the directory")
	fmt.Fprintln(cli.out, "  fanout [-id ID] [-older-than DURATION] [-limit N] - complete pending notification fan-outs")
	fmt.Fprintln(cli.out, "  token -id ID - issue a bearer token for a user of the directory")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	addUserID := addUserCmd.String("id", "", "The user's id, as known by the auth layer.")
	addUserName := addUserCmd.String("name", "", "The user's display name.")
	addUserRole := addUserCmd.String("role", core.RoleStudent, "One of admin, teacher, student.")

	fanOutCmd := flag.NewFlagSet("fanout", flag.ContinueOnError)
	fanOutCmd.SetOutput(cli.out)
	fanOutID := fanOutCmd.String("id", "", "Complete this notification only.")
	fanOutOlderThan := fanOutCmd.Duration("older-than", time.Minute, "Only complete notifications pending for at least this long.")
	fanOutLimit := fanOutCmd.Int("limit", 100, "Maximum number of notifications to complete.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenID := tokenCmd.String("id", "", "The user's id.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserID == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserID, *addUserName, *addUserRole)
	case "fanout":
		if err := fanOutCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.fanOut(*fanOutID, *fanOutOlderThan, *fanOutLimit)
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenID == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenID)
	default:
		cli.printUsage()
		return errHelp
	}
}
