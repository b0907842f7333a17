// Package web provides the embedded status page for sidekick-service.
package web

import "embed"

// Static contains the embedded status page assets.
//
//go:embed static/*
var Static embed.FS
