// Package history persists finished workflow runs so they can be listed and
// inspected after the process that ran them has exited. Tables are created by
// internal/migration; AutoMigrate exists for tests and throwaway databases.
package history
