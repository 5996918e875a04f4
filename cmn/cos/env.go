// Package cos provides common low-level types and utilities for all staging packages
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"os"
	"strings"
)

// GetEnvOrDefault returns the value of the environment variable if it exists,
// otherwise it returns the provided default value.
func GetEnvOrDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}

// comma-separated list, empty elements skipped
func GetEnvList(envVar string) (list []string) {
	value := os.Getenv(envVar)
	if value == "" {
		return nil
	}
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	return list
}
