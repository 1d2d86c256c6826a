// Package appfs embeds the static files shipped with the binaries:
// database migrations & email templates.
package appfs

import "embed"

//go:embed migrations templates/email/*
var FS embed.FS
