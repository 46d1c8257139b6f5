// Package models contains GORM persistence models for the ERP tables the
// reconciler reads. The tables are owned by the ERP; the reconciler never
// writes to them, and the models only map rows to domain snapshots.
//
// Structure:
// - settlement.go: stock movements, supplier payments and the party register
package models
