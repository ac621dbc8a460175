// Command smoke exercises a running API end to end: login, group and animal
// setup, a bulk archive, and a read-back check of the derived fields.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	base := os.Getenv("SHELTERHUB_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	email := os.Getenv("SHELTERHUB_SMOKE_EMAIL")
	if email == "" {
		email = "admin@shelterhub.local"
	}
	password := os.Getenv("SHELTERHUB_SMOKE_PASSWORD")
	if password == "" {
		password = "changeme"
	}

	c := &client{base: base, http: &http.Client{Timeout: 10 * time.Second}}

	var tok struct {
		Token string `json:"token"`
	}
	c.call(http.MethodPost, "/v1/auth/token", map[string]any{
		"email":    email,
		"password": password,
	}, &tok)
	if tok.Token == "" {
		log.Fatal("login returned empty token")
	}
	c.token = tok.Token

	var group struct {
		ID int64 `json:"id"`
	}
	c.call(http.MethodPost, "/v1/groups", map[string]any{
		"name": fmt.Sprintf("smoke-%d", time.Now().Unix()),
	}, &group)

	var animal struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	c.call(http.MethodPost, "/v1/animals", map[string]any{
		"group_id": group.ID,
		"name":     "Smokey",
		"species":  "cat",
	}, &animal)
	if animal.Status != "available" {
		log.Fatalf("unexpected default status %q", animal.Status)
	}

	var bulk struct {
		Count int64 `json:"count"`
	}
	c.call(http.MethodPost, "/v1/animals/bulk-update", map[string]any{
		"animal_ids": []int64{animal.ID},
		"status":     "archived",
	}, &bulk)
	if bulk.Count != 1 {
		log.Fatalf("bulk update count = %d, want 1", bulk.Count)
	}

	var after struct {
		Status     string  `json:"status"`
		ArchivedAt *string `json:"archived_at"`
	}
	c.call(http.MethodGet, fmt.Sprintf("/v1/animals/%d", animal.ID), nil, &after)
	if after.Status != "archived" || after.ArchivedAt == nil {
		log.Fatalf("bulk archive not applied: status=%q archived_at=%v", after.Status, after.ArchivedAt)
	}

	fmt.Printf("smoke test passed: group=%d animal=%d\n", group.ID, animal.ID)
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) call(method, path string, body any, out any) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: marshal: %v", method, path, err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, payload)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		log.Fatalf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}
