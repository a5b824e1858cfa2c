package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fieldlink/fieldlink-go/internal/client/api"
	"github.com/fieldlink/fieldlink-go/internal/client/securestore"
	"github.com/fieldlink/fieldlink-go/internal/common"
)

func (a *App) Login(ctx context.Context) {

	email, err := GetSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	password, err := GetPassword(os.Stdout)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	defer common.WipeByteArray(password)

	user, err := a.auth.Login(ctx, email, string(password))
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidCredentials):
			fmt.Println("Login unsuccessful: invalid email or password")
		case errors.Is(err, common.ErrNetworkUnavailable):
			fmt.Println("Login unsuccessful: server unreachable")
		default:
			fmt.Printf("Login unsuccessful: %v\n", err)
		}
		return
	}

	fmt.Printf("Logged in as %s %s\n", user.FirstName, user.LastName)
}

func (a *App) Register(ctx context.Context) {

	email, err := GetSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	firstName, err := GetSimpleText(a.reader, "Enter first name", os.Stdout)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	lastName, err := GetSimpleText(a.reader, "Enter last name", os.Stdout)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	company, err := GetSimpleText(a.reader, "Enter company (optional)", os.Stdout)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	password, err := GetPassword(os.Stdout)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	defer common.WipeByteArray(password)

	user, err := a.auth.Register(ctx, api.RegisterRequest{
		Email:     email,
		Password:  string(password),
		FirstName: firstName,
		LastName:  lastName,
		Company:   company,
	})
	if err != nil {
		fmt.Printf("Registration unsuccessful: %v\n", err)
		return
	}

	fmt.Printf("Registered and logged in as %s\n", user.Email)
}

func (a *App) Logout(ctx context.Context) {
	if err := a.auth.Logout(ctx); err != nil {
		fmt.Printf("Logout finished with error: %v\n", err)
		return
	}
	fmt.Println("Logged out")
}

func (a *App) Status(ctx context.Context) {
	state := a.auth.CurrentState()
	fmt.Printf("Session: %s\n", state.Status)
	if state.User.Email != "" {
		fmt.Printf("User: %s (%s %s)\n", state.User.Email, state.User.FirstName, state.User.LastName)
	}
	if state.Reason != "" {
		fmt.Printf("Reason: %s\n", state.Reason)
	}

	has, err := a.auth.HasBiometricCredentials(ctx)
	if err == nil && has {
		fmt.Println("Biometric re-login: available")
	}
}

// SaveBiometric stores the current credentials behind the strong-auth gate.
// The credentials are prompted again rather than cached from login.
func (a *App) SaveBiometric(ctx context.Context) {

	if !a.isLoggedIn() {
		fmt.Println("Log in first")
		return
	}

	email, err := GetSimpleText(a.reader, "Confirm email", os.Stdout)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	defer common.WipeByteArray(password)

	if err := a.ensureStrongAuth(ctx); err != nil {
		fmt.Printf("Strong authentication setup failed: %v\n", err)
		return
	}

	if err := a.auth.SaveBiometricCredentials(ctx, email, string(password)); err != nil {
		fmt.Printf("Could not save biometric credentials: %v\n", err)
		return
	}
	fmt.Println("Biometric credentials saved")
}

func (a *App) ClearBiometric(ctx context.Context) {
	if err := a.auth.ClearBiometricCredentials(ctx); err != nil {
		fmt.Printf("Could not clear biometric credentials: %v\n", err)
		return
	}
	fmt.Println("Biometric credentials cleared")
}

// BiometricLogin simulates the platform biometric prompt with a strong-auth
// passphrase prompt, then re-authenticates with the stored credentials.
func (a *App) BiometricLogin(ctx context.Context) {

	has, err := a.auth.HasBiometricCredentials(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if !has {
		fmt.Println("No biometric credentials saved")
		return
	}

	fmt.Println("Strong authentication required")
	secret, err := GetPassword(os.Stdout)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	defer common.WipeByteArray(secret)

	user, err := a.auth.BiometricLogin(ctx, &securestore.AuthContext{Secret: secret})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrAuthenticationRequired):
			fmt.Println("Strong authentication failed")
		case errors.Is(err, common.ErrInvalidCredentials):
			fmt.Println("Stored credentials were rejected, log in manually")
		default:
			fmt.Printf("Biometric login unsuccessful: %v\n", err)
		}
		return
	}

	fmt.Printf("Logged in as %s %s\n", user.FirstName, user.LastName)
}

// ensureStrongAuth configures the store's strong-auth gate on first use,
// or unlocks it when already configured.
func (a *App) ensureStrongAuth(ctx context.Context) error {
	configured, err := a.store.StrongAuthConfigured(ctx)
	if err != nil {
		return err
	}

	if configured {
		fmt.Println("Strong authentication required")
	} else {
		fmt.Println("Choose a strong authentication passphrase")
	}
	secret, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	deadline, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.store.ConfigureStrongAuth(deadline, secret)
}
