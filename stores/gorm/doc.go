//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based passport.CredentialStore.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite,
// etc.) and is the store the passportd daemon uses.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - accounts: local accounts, unique on username
//   - password_resets: single-use reset tickets, unique on token
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	store := gormstore.NewCredentialStore(db)
package gorm
