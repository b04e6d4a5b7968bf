// Package instance names the running process in logs.
package instance

import "os"

// ID returns the platform dyno name, then WORKER_ID, then fallback.
func ID(fallback string) string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return fallback
}
