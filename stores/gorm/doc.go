//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the estateauth store
// interfaces. It supports any database that GORM supports (PostgreSQL,
// MySQL, SQLite, etc.) and is suitable for deployments that keep the catalog
// in a relational database.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: principals, with unique email and unique (nullable) google_id
//   - owners: owner profiles, with a unique principal_id
//
// Unique violations are reported as estateauth.ErrDuplicate, which requires
// the connection to be opened with TranslateError enabled.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	principals := gormstore.NewPrincipalStore(db)
//	profiles := gormstore.NewProfileStore(db)
package gorm
