package main

import (
	"fmt"
	"log"
	"os"

	"snipr.local/internal/platform/auth"
)

// 生成 ADMIN_PASSWORD_HASH
func main() {
	if len(os.Args) != 2 {
		log.Fatal("usage: go run ./cmd/tools/hashpass <password>")
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(hash))
}
