package main

import (
	"fmt"
	"os"

	"github.com/neonchat/neonchat/clients/go/neon"
	"github.com/neonchat/neonchat/internal/crypto"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: roomkey salt | recovery | fingerprint <salt>")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "salt":
		salt, err := crypto.GenerateSalt()
		if err != nil {
			panic(err)
		}
		fmt.Printf("Room salt (base64): %s\n", salt)

	case "recovery":
		key, err := neon.GenerateRecoveryKey()
		if err != nil {
			panic(err)
		}
		hash, err := crypto.HashRecoveryKey(key)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Recovery key: %s\n", key)
		fmt.Printf("Stored hash:  %s\n", hash)

	case "fingerprint":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: NEON_ROOM_PASSWORD=... roomkey fingerprint <salt>")
			os.Exit(1)
		}
		key, err := neon.DeriveRoomKey(os.Getenv("NEON_ROOM_PASSWORD"), os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		defer key.Destroy()
		fp, err := key.Fingerprint()
		if err != nil {
			panic(err)
		}
		fmt.Printf("Key fingerprint: %s\n", fp)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}
