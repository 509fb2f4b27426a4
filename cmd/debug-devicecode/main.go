package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Quick probe for the Microsoft device-code endpoint: requests a code and
// prints the verification details without polling for the token.
func main() {
	clientID := os.Getenv("MSA_CLIENT_ID")
	if clientID == "" {
		fmt.Fprintln(os.Stderr, "set MSA_CLIENT_ID to the application client id")
		os.Exit(1)
	}

	endpoint := "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode"
	form := url.Values{
		"client_id": {clientID},
		"scope":     {"XboxLive.signin offline_access"},
	}

	fmt.Printf("Querying: %s\n", endpoint)

	resp, err := http.Post(endpoint, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		panic(fmt.Sprintf("Status %d: %s", resp.StatusCode, string(body)))
	}

	var reply map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		panic(err)
	}

	fmt.Printf("User code: %v\n", reply["user_code"])
	uri := reply["verification_uri"]
	if uri == nil {
		// Some deployments use the old field name
		uri = reply["verification_url"]
	}
	fmt.Printf("Verification URI: %v\n", uri)
	fmt.Printf("Expires in: %v seconds\n", reply["expires_in"])
	fmt.Printf("Poll interval: %v seconds\n", reply["interval"])
}
