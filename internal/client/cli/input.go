package cli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
// In tests you can replace it with a stub to avoid touching the terminal.
var readPassword = term.ReadPassword

// GetAPIKey prints a prompt to w and reads the upload API key from the
// user's terminal without echo. A newline is printed after the read to keep
// the UI tidy.
func GetAPIKey(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Enter API key: "); err != nil {
		return nil, err
	}
	key, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return key, nil
}
