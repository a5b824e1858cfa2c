package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fieldlink/fieldlink-go/internal/client/session"
)

func (a *App) getStatus() string {
	state := a.machine.Current()
	s := state.Status.String()
	if state.User.Email != "" {
		s = state.User.Email + " " + s
	}
	return fmt.Sprintf("(%s)", s)
}

// Root runs the interactive command loop. Session state changes arriving
// from the background (proactive refresh, watchdog) are printed as they
// happen.
func (a *App) Root(ctx context.Context) {

	fmt.Println("Welcome to Fieldlink CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	unsubscribe := a.machine.Subscribe(func(s session.State) {
		if s.Reason != "" {
			fmt.Printf("\nsession is now %s (%s)\n", s.Status, s.Reason)
		}
	})
	defer unsubscribe()

	for {
		fmt.Printf("fieldlink %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Println("Available commands: status, projects, bio-save, bio-clear, bg, fg, logout, exit")
			} else {
				fmt.Println("Available commands: register, login, bio-login, status, exit")
			}

		case "register":
			a.Register(ctx)
		case "login":
			a.Login(ctx)
		case "bio-login":
			a.BiometricLogin(ctx)
		case "bio-save":
			a.SaveBiometric(ctx)
		case "bio-clear":
			a.ClearBiometric(ctx)
		case "status":
			a.Status(ctx)
		case "projects":
			a.Projects(ctx)
		case "bg":
			a.auth.EnterBackground()
			fmt.Println("App moved to background")
		case "fg":
			a.auth.EnterForeground(ctx)
			fmt.Println("App moved to foreground")
		case "logout":
			a.Logout(ctx)
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}
