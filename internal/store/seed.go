package store

import "fmt"

// seedCatalog populates the canonical food and activity catalogs on first
// startup. A non-empty foods table means the catalog was already seeded (or
// replaced by an operator) and is left alone.
func (s *Store) seedCatalog() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM foods`).Scan(&count); err != nil {
		return fmt.Errorf("count foods: %w", err)
	}
	if count > 0 {
		return nil
	}

	foods := []Food{
		{Name: "whey protein", ServingGrams: 30, CaloriesPer100g: 400, ProteinPer100g: 80, CarbsPer100g: 8, FatPer100g: 6},
		{Name: "chicken breast", ServingGrams: 150, CaloriesPer100g: 165, ProteinPer100g: 31, CarbsPer100g: 0, FatPer100g: 3.6},
		{Name: "white rice", ServingGrams: 180, CaloriesPer100g: 130, ProteinPer100g: 2.7, CarbsPer100g: 28, FatPer100g: 0.3},
		{Name: "brown rice", ServingGrams: 180, CaloriesPer100g: 112, ProteinPer100g: 2.6, CarbsPer100g: 24, FatPer100g: 0.9},
		{Name: "oats", ServingGrams: 40, CaloriesPer100g: 389, ProteinPer100g: 16.9, CarbsPer100g: 66, FatPer100g: 6.9},
		{Name: "egg", ServingGrams: 50, CaloriesPer100g: 155, ProteinPer100g: 13, CarbsPer100g: 1.1, FatPer100g: 11},
		{Name: "banana", ServingGrams: 118, CaloriesPer100g: 89, ProteinPer100g: 1.1, CarbsPer100g: 23, FatPer100g: 0.3},
		{Name: "apple", ServingGrams: 182, CaloriesPer100g: 52, ProteinPer100g: 0.3, CarbsPer100g: 14, FatPer100g: 0.2},
		{Name: "greek yogurt", ServingGrams: 170, CaloriesPer100g: 59, ProteinPer100g: 10, CarbsPer100g: 3.6, FatPer100g: 0.4},
		{Name: "salmon", ServingGrams: 125, CaloriesPer100g: 208, ProteinPer100g: 20, CarbsPer100g: 0, FatPer100g: 13},
		{Name: "almonds", ServingGrams: 28, CaloriesPer100g: 579, ProteinPer100g: 21, CarbsPer100g: 22, FatPer100g: 50},
		{Name: "peanut butter", ServingGrams: 32, CaloriesPer100g: 588, ProteinPer100g: 25, CarbsPer100g: 20, FatPer100g: 50},
		{Name: "whole milk", ServingGrams: 244, CaloriesPer100g: 61, ProteinPer100g: 3.2, CarbsPer100g: 4.8, FatPer100g: 3.3},
		{Name: "broccoli", ServingGrams: 91, CaloriesPer100g: 34, ProteinPer100g: 2.8, CarbsPer100g: 7, FatPer100g: 0.4},
		{Name: "sweet potato", ServingGrams: 130, CaloriesPer100g: 86, ProteinPer100g: 1.6, CarbsPer100g: 20, FatPer100g: 0.1},
		{Name: "olive oil", ServingGrams: 14, CaloriesPer100g: 884, ProteinPer100g: 0, CarbsPer100g: 0, FatPer100g: 100},
		{Name: "pasta", ServingGrams: 140, CaloriesPer100g: 131, ProteinPer100g: 5, CarbsPer100g: 25, FatPer100g: 1.1},
		{Name: "bread", ServingGrams: 40, CaloriesPer100g: 265, ProteinPer100g: 9, CarbsPer100g: 49, FatPer100g: 3.2},
		{Name: "cottage cheese", ServingGrams: 113, CaloriesPer100g: 98, ProteinPer100g: 11, CarbsPer100g: 3.4, FatPer100g: 4.3},
		{Name: "tuna", ServingGrams: 100, CaloriesPer100g: 132, ProteinPer100g: 28, CarbsPer100g: 0, FatPer100g: 1.3},
		{Name: "avocado", ServingGrams: 150, CaloriesPer100g: 160, ProteinPer100g: 2, CarbsPer100g: 9, FatPer100g: 15},
		{Name: "protein bar", ServingGrams: 60, CaloriesPer100g: 380, ProteinPer100g: 33, CarbsPer100g: 40, FatPer100g: 12},
	}

	activities := []Activity{
		{Name: "walking", MET: 3.5},
		{Name: "running", MET: 9.8},
		{Name: "cycling", MET: 7.5},
		{Name: "swimming", MET: 8.0},
		{Name: "weight lifting", MET: 6.0},
		{Name: "yoga", MET: 2.5},
		{Name: "hiking", MET: 6.0},
		{Name: "rowing", MET: 7.0},
		{Name: "jump rope", MET: 11.0},
		{Name: "elliptical", MET: 5.0},
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, f := range foods {
		_, err := tx.Exec(`
			INSERT INTO foods (name, serving_grams, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g)
			VALUES (?, ?, ?, ?, ?, ?)
		`, f.Name, f.ServingGrams, f.CaloriesPer100g, f.ProteinPer100g, f.CarbsPer100g, f.FatPer100g)
		if err != nil {
			return fmt.Errorf("seed food %q: %w", f.Name, err)
		}
	}
	for _, a := range activities {
		if _, err := tx.Exec(`INSERT INTO activities (name, met) VALUES (?, ?)`, a.Name, a.MET); err != nil {
			return fmt.Errorf("seed activity %q: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}
