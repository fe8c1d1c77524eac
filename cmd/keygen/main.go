package main

import (
	"fmt"
	"log"
	"os"

	"chat_assistant/internal/auth"
	"chat_assistant/internal/secrets"
)

// keygen generates the secrets the assistant needs at deploy time:
//
//	keygen            prints a fresh base64 AES-256 key for SECRET_ENCRYPTION_KEY
//	keygen password   reads a password from argv[2] and prints its argon2id hash
//	                  for ADMIN_PASSWORD_HASH
func main() {
	if len(os.Args) > 1 && os.Args[1] == "password" {
		if len(os.Args) < 3 {
			log.Fatal("usage: keygen password <password>")
		}
		hash, err := auth.HashPassword(os.Args[2])
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	key, err := secrets.GenerateKey()
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}
	fmt.Println(key)
}
