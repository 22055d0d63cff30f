package store

import (
	"database/sql"
	"fmt"
)

// Profile loads the coaching profile, returning ErrNotFound for unknown
// users rather than an empty row.
func (s *Store) Profile(userID string) (*Profile, error) {
	row := s.db.QueryRow(`
		SELECT user_id, language, timezone, goal_calories, goal_protein_g, goal_note, weight_kg, updated_at
		FROM profiles WHERE user_id = ?
	`, userID)

	var p Profile
	err := row.Scan(&p.UserID, &p.Language, &p.Timezone, &p.GoalCalories, &p.GoalProteinG, &p.GoalNote, &p.WeightKg, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &p, nil
}

// UpsertProfile creates or replaces the profile row.
func (s *Store) UpsertProfile(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, language, timezone, goal_calories, goal_protein_g, goal_note, weight_kg, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			language = excluded.language,
			timezone = excluded.timezone,
			goal_calories = excluded.goal_calories,
			goal_protein_g = excluded.goal_protein_g,
			goal_note = excluded.goal_note,
			weight_kg = excluded.weight_kg,
			updated_at = excluded.updated_at
	`, p.UserID, p.Language, p.Timezone, p.GoalCalories, p.GoalProteinG, p.GoalNote, p.WeightKg, now())
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// UpdateGoal mutates only the goal fields, creating the profile when absent.
func (s *Store) UpdateGoal(userID string, calories, proteinG float64, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, goal_calories, goal_protein_g, goal_note, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			goal_calories = excluded.goal_calories,
			goal_protein_g = excluded.goal_protein_g,
			goal_note = excluded.goal_note,
			updated_at = excluded.updated_at
	`, userID, calories, proteinG, note, now())
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return nil
}

// SetProfileLanguage pins the user's preferred reply language.
func (s *Store) SetProfileLanguage(userID, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, language, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET language = excluded.language, updated_at = excluded.updated_at
	`, userID, language, now())
	if err != nil {
		return fmt.Errorf("set profile language: %w", err)
	}
	return nil
}
