package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/animals":                   "/v1/animals",
		"/v1/animals/42":                "/v1/animals/:id",
		"/v1/animals/42?include=tags":   "/v1/animals/:id",
		"/v1/animals/42/comments":       "/v1/animals/:id/comments",
		"/v1/animals/42/tags":           "/v1/animals/:id/tags",
		"/v1/animals/42/tags/7":         "/v1/animals/:id/tags/:tagID",
		"/v1/animals/42/quarantine-end": "/v1/animals/:id/quarantine-end",
		"/v1/animals/bulk-update":       "/v1/animals/bulk-update",
		"/v1/animals/export":            "/v1/animals/export",
		"/v1/animals/42/extra":          "/v1/animals/42/extra",
		"/v1/groups/3":                  "/v1/groups/:id",
		"/v1/groups/3/members":          "/v1/groups/:id/members",
		"/v1/groups/3/members/01ABC":    "/v1/groups/:id/members/:userID",
		"/v1/users/01ABC":               "/v1/users/:id",
		"/v1/auth/token":                "/v1/auth/token",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
