package main

//go:generate swag init -g cmd/gateway/main.go -o docs

// @title           Trade Execution Gateway API
// @version         0.1.0
// @description     Session auth, approvals, proxy wallet management, and order submission.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
