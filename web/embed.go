package web

import "embed"

// TemplatesFS embeds the dashboard templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds stylesheets and other static assets.
//
//go:embed static/*
var StaticFS embed.FS
