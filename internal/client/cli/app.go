package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/learnkeeper/internal/client/client"
	"github.com/dmitrijs2005/learnkeeper/internal/client/config"
	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/flagx"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var ErrUsage = errors.New("usage")

const usage = `usage: learnctl [-a addr] [-t seconds] [-f token-file] <command> [args]

commands:
  ping                                  check the server is reachable
  signup <username> <email> [admin]     create an account
  signin <username|email>               sign in, then enter the emailed code
  whoami                                show the signed-in account
  progress <json-object>                replace course progress
  join <join-code>                      join an institution as a student
  paid <course-id>                      check access to a course
  signout                               end the current session`

type App struct {
	config *config.Config
	api    client.Client
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(c *config.Config, api client.Client, in io.Reader, out io.Writer) *App {
	return &App{config: c, api: api, reader: bufio.NewReader(in), out: out}
}

// CommandArgs strips global flags from args and returns the command words.
func CommandArgs(args []string) []string {
	return flagx.Positional(args, []string{"-a", "-t", "-f", "-c", "-config"})
}

func (a *App) loadToken() {
	b, err := os.ReadFile(a.config.TokenFile)
	if err != nil {
		return
	}
	a.api.SetToken(strings.TrimSpace(string(b)))
}

func (a *App) saveToken() error {
	if a.api.Token() == "" {
		err := os.Remove(a.config.TokenFile)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.WriteFile(a.config.TokenFile, []byte(a.api.Token()), 0o600)
}

// Run executes the command in args.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, usage)
		return ErrUsage
	}

	a.loadToken()

	ctx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	defer cancel()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "ping":
		if err := a.api.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "pong")
		return nil
	case "signup":
		return a.SignUp(ctx, rest)
	case "signin":
		return a.SignIn(ctx, rest)
	case "whoami":
		return a.WhoAmI(ctx)
	case "progress":
		return a.SaveProgress(ctx, rest)
	case "join":
		if len(rest) != 1 {
			return ErrUsage
		}
		name, err := a.api.JoinInstitution(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Joined %s\n", name)
		return nil
	case "paid":
		if len(rest) != 1 {
			return ErrUsage
		}
		paid, err := a.api.CheckIfPaidFor(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: paid=%t\n", rest[0], paid)
		return nil
	case "signout":
		if err := a.api.SignOut(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Signed out")
		return a.saveToken()
	default:
		fmt.Fprintln(a.out, usage)
		return ErrUsage
	}
}

// SignUp creates an account. The password is read twice without echo.
func (a *App) SignUp(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return ErrUsage
	}
	kind := "individual"
	if len(args) == 3 {
		kind = args[2]
	}

	password, err := getPassword("Password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	again, err := getPassword("Repeat password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(again)

	if string(password) != string(again) {
		return errors.New("passwords do not match")
	}

	userID, err := a.api.SignUp(ctx, args[0], args[1], string(password), kind)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Created account %s\n", userID)
	return nil
}

// SignIn runs both sign-in steps and stores the resulting token.
func (a *App) SignIn(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}

	password, err := getPassword("Password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.api.SignIn(ctx, args[0], string(password)); err != nil {
		return err
	}

	code, err := getSimpleText(a.reader, "Enter the code sent to your email", a.out)
	if err != nil {
		return err
	}
	if err := a.api.CompleteMFA(ctx, code); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Signed in")
	return a.saveToken()
}

func (a *App) WhoAmI(ctx context.Context) error {
	acc, err := a.api.WhoAmI(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "user:     %s (%s)\n", acc.Username, acc.UserID)
	fmt.Fprintf(a.out, "email:    %s\n", acc.Email)
	fmt.Fprintf(a.out, "kind:     %s\n", acc.Kind)
	if acc.InstitutionName != "" {
		fmt.Fprintf(a.out, "institution: %s\n", acc.InstitutionName)
	}
	if len(acc.CourseProgress) > 0 {
		b, err := json.Marshal(acc.CourseProgress)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "progress: %s\n", b)
	}
	return nil
}

func (a *App) SaveProgress(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(args[0]), &doc); err != nil || doc == nil {
		return fmt.Errorf("progress must be a JSON object")
	}
	if err := a.api.SaveProgress(ctx, doc); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Saved")
	return nil
}
