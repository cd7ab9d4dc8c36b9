package main

import (
	"fmt"
	"log"

	"github.com/travelhub/booking-backend/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator")
	fmt.Println("===========================================")
	fmt.Println()

	secrets, err := utils.GenerateSecrets(utils.SecretNames...)
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Secrets generated successfully!")
	fmt.Println()
	fmt.Println("Add these to your .env file:")
	fmt.Println()
	for _, name := range utils.SecretNames {
		fmt.Printf("%s=%s\n", name, secrets[name])
	}
	fmt.Println()
	fmt.Println("IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
