package main

import (
	"fmt"
	"os"

	"chatsync/internal/content"
	"chatsync/internal/models"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Println("Usage: chatid <user> <user>")
		os.Exit(1)
	}

	for _, name := range os.Args[1:] {
		if err := content.ValidateUsername(name); err != nil {
			fmt.Printf("Error: %q: %v\n", name, err)
			os.Exit(1)
		}
	}

	fmt.Println(models.DeriveChatID(os.Args[1], os.Args[2]))
}
