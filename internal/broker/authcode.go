package broker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// StaticCodeProvider returns a pre-obtained authorization code without
// prompting, for tests and CI that already hold a valid code.
type StaticCodeProvider struct {
	Code string
}

// Authorize implements AuthorizationCodeProvider.
func (p StaticCodeProvider) Authorize(_ context.Context, _ string) (string, error) {
	if p.Code == "" {
		return "", fmt.Errorf("broker: no static authorization code configured")
	}
	return p.Code, nil
}

// ManualCodeProvider prints the authorization URL for the operator to
// open in a browser and reads the resulting code from stdin. No
// browser automation is implemented, per spec.md §1.
type ManualCodeProvider struct{}

// Authorize implements AuthorizationCodeProvider.
func (ManualCodeProvider) Authorize(_ context.Context, authURL string) (string, error) {
	fmt.Println("Open the following URL in a browser and authorize access:")
	fmt.Println(authURL)
	fmt.Print("Paste the resulting authorization code: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("broker: read authorization code: %w", err)
	}
	return strings.TrimSpace(line), nil
}
