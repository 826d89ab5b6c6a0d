// Package testsupport provides shared fixtures for package tests: temp-dir
// backed configs, stub executables on PATH, small image files and ledger
// helpers.
package testsupport
