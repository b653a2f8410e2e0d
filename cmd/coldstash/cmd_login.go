package main

import (
	"context"
	"fmt"

	"coldstash/internal/api"
	"coldstash/internal/authstore"
)

func runLogin(ctx context.Context, configPath, keyID, secret string) error {
	a, err := setupApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := api.New(a.cfg.Endpoint, api.Credentials{KeyID: keyID, Secret: secret})
	if err != nil {
		return err
	}
	user, err := client.GetUser(ctx)
	if err != nil {
		return fmt.Errorf("credential check failed: %w", err)
	}

	if err := a.auth.Save(authstore.Credentials{
		KeyID:  keyID,
		Secret: secret,
		UserID: user.ID,
		Email:  user.Email,
	}); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", user.Email)
	return nil
}

func runLogout(ctx context.Context, configPath string) error {
	a, err := setupApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.auth.Clear(); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}
