package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// With ADMIN_TOTP_SECRET set, prints the current TOTP code for that
// secret. Without it, generates a fresh secret to store in the
// environment.
func main() {
	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if secret == "" {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "Object Sync Admin",
			AccountName: "admin",
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			fmt.Printf("Error generating TOTP secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("New TOTP Secret: %s\n", key.Secret())
		fmt.Printf("Provisioning URL: %s\n", key.URL())
		fmt.Println("Save the secret to the ADMIN_TOTP_SECRET environment variable.")
		return
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Printf("Error generating TOTP code: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Current TOTP Code: %s\n", code)
	fmt.Println("Valid for: ~30 seconds")
}
