// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain types to keep the domain layer free of ORM concerns.
//
// Key Principles:
// 1. Domain types carry no GORM tags
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain types and persistence models
// 4. Repositories use persistence models for database operations
package models
