package web

import (
	"embed"
)

// staticFiles holds the embedded page, style and script.
//
//go:embed static/*
var staticFiles embed.FS
