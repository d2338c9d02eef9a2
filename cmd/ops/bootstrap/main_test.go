package main

import "testing"

func TestValidEnvironments(t *testing.T) {
	for _, env := range []string{"dev", "staging", "prod"} {
		if !validEnvironments[env] {
			t.Errorf("environment %q should be valid", env)
		}
	}
	for _, env := range []string{"", "local", "production", "DEV"} {
		if validEnvironments[env] {
			t.Errorf("environment %q should not be valid", env)
		}
	}
}
