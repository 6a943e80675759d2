package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"gradebook.dev/internal/auth"
	"gradebook.dev/internal/grpcapi"
)

// smoke-auth registers a throwaway student over HTTP, logs in, and checks that the
// gRPC identity service resolves the issued token to the same identity.
func main() {
	httpBase := getenv("GRADEBOOK_SMOKE_HTTP", "http://localhost:8080")
	grpcAddr := getenv("GRADEBOOK_SMOKE_GRPC", "localhost:9090")

	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("smoke-%d@gradebook.test", suffix)
	password := "smoke-pass"

	client := &http.Client{Timeout: 5 * time.Second}
	register := map[string]any{
		"email":          email,
		"password":       password,
		"first_name":     "Smoke",
		"last_name":      "Test",
		"student_number": fmt.Sprintf("SMK-%d", suffix%1_000_000_000),
	}
	if code := postJSON(client, httpBase+"/auth/register/student", register, nil); code != http.StatusCreated {
		log.Fatalf("register: unexpected status %d", code)
	}

	var login struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID   int64     `json:"id"`
			Role auth.Role `json:"role"`
		} `json:"user"`
	}
	if code := postJSON(client, httpBase+"/auth/login", map[string]string{"email": email, "password": password}, &login); code != http.StatusOK {
		log.Fatalf("login: unexpected status %d", code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rpc, err := grpcapi.Dial(ctx, grpcAddr)
	if err != nil {
		log.Fatalf("dial gradebook at %s: %v", grpcAddr, err)
	}
	defer rpc.Close()

	summary, err := rpc.WhoAmI(ctx, login.AccessToken)
	if err != nil {
		log.Fatalf("whoami: %v", err)
	}
	if summary.ID != login.User.ID || summary.Role != auth.RoleStudent {
		log.Fatalf("identity mismatch: http=%d/%s grpc=%d/%s", login.User.ID, login.User.Role, summary.ID, summary.Role)
	}

	fmt.Printf("smoke test passed: id=%d email=%s\n", summary.ID, summary.Email)
}

func postJSON(client *http.Client, url string, body, out any) int {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
