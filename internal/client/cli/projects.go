package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldlink/fieldlink-go/internal/common"
)

func (a *App) Projects(ctx context.Context) {

	projects, err := a.projects.List(ctx)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrUnauthorized):
			fmt.Println("Session expired, log in again")
		case errors.Is(err, common.ErrNetworkUnavailable):
			fmt.Println("Server unreachable")
		default:
			fmt.Printf("Could not list projects: %v\n", err)
		}
		return
	}

	if len(projects) == 0 {
		fmt.Println("No projects")
		return
	}
	for _, p := range projects {
		fmt.Printf("%-36s  %-20s  %-10s  %s\n", p.ID, p.Name, p.Status, p.Address)
	}
}
