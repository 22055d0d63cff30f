package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Foods returns the canonical food catalog for name resolution.
func (s *Store) Foods() ([]Food, error) {
	rows, err := s.db.Query(`
		SELECT id, name, serving_grams, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g
		FROM foods ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load foods: %w", err)
	}
	defer rows.Close()
	return scanFoods(rows)
}

func (s *Store) FoodByID(id int64) (*Food, error) {
	row := s.db.QueryRow(`
		SELECT id, name, serving_grams, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g
		FROM foods WHERE id = ?
	`, id)
	var f Food
	err := row.Scan(&f.ID, &f.Name, &f.ServingGrams, &f.CaloriesPer100g, &f.ProteinPer100g, &f.CarbsPer100g, &f.FatPer100g)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load food: %w", err)
	}
	return &f, nil
}

// SearchFoods is a substring search used by the search_food read tool.
func (s *Store) SearchFoods(query string, limit int) ([]Food, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.db.Query(`
		SELECT id, name, serving_grams, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g
		FROM foods WHERE lower(name) LIKE ? ORDER BY name ASC LIMIT ?
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search foods: %w", err)
	}
	defer rows.Close()
	return scanFoods(rows)
}

func (s *Store) Activities() ([]Activity, error) {
	rows, err := s.db.Query(`SELECT id, name, met FROM activities ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	defer rows.Close()

	result := make([]Activity, 0)
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Name, &a.MET); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return result, nil
}

func (s *Store) ActivityByID(id int64) (*Activity, error) {
	row := s.db.QueryRow(`SELECT id, name, met FROM activities WHERE id = ?`, id)
	var a Activity
	err := row.Scan(&a.ID, &a.Name, &a.MET)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}
	return &a, nil
}

// ApplyMealMutation inserts a canonical meal log row and returns its id.
func (s *Store) ApplyMealMutation(log MealLog) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := log.ID
	if id == "" {
		id = uuid.NewString()
	}
	loggedAt := log.LoggedAt
	if loggedAt == "" {
		loggedAt = now()
	}
	_, err := s.db.Exec(`
		INSERT INTO meal_logs (id, user_id, food_id, grams, calories, protein_g, carbs_g, fat_g, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, log.UserID, log.FoodID, log.Grams, log.Calories, log.ProteinG, log.CarbsG, log.FatG, loggedAt)
	if err != nil {
		return "", fmt.Errorf("apply meal mutation: %w", err)
	}
	return id, nil
}

func (s *Store) ApplyActivityMutation(log ActivityLog) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := log.ID
	if id == "" {
		id = uuid.NewString()
	}
	loggedAt := log.LoggedAt
	if loggedAt == "" {
		loggedAt = now()
	}
	_, err := s.db.Exec(`
		INSERT INTO activity_logs (id, user_id, activity_id, duration_min, calories_burned, logged_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, log.UserID, log.ActivityID, log.DurationMin, log.CaloriesBurned, loggedAt)
	if err != nil {
		return "", fmt.Errorf("apply activity mutation: %w", err)
	}
	return id, nil
}

func (s *Store) ApplyMeasurementMutation(m Measurement) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	loggedAt := m.LoggedAt
	if loggedAt == "" {
		loggedAt = now()
	}
	_, err := s.db.Exec(`
		INSERT INTO measurements (id, user_id, metric, value, unit, logged_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, m.UserID, m.Metric, m.Value, m.Unit, loggedAt)
	if err != nil {
		return "", fmt.Errorf("apply measurement mutation: %w", err)
	}
	return id, nil
}

// MealLogByID is user-scoped: a row belonging to another user reads as not
// found, never as someone else's data.
func (s *Store) MealLogByID(userID, id string) (*MealLog, error) {
	row := s.db.QueryRow(`
		SELECT l.id, l.user_id, l.food_id, f.name, l.grams, l.calories, l.protein_g, l.carbs_g, l.fat_g, l.logged_at
		FROM meal_logs l JOIN foods f ON l.food_id = f.id
		WHERE l.id = ? AND l.user_id = ?
	`, id, userID)
	var m MealLog
	err := row.Scan(&m.ID, &m.UserID, &m.FoodID, &m.FoodName, &m.Grams, &m.Calories, &m.ProteinG, &m.CarbsG, &m.FatG, &m.LoggedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load meal log: %w", err)
	}
	return &m, nil
}

func (s *Store) RecentMeals(userID string, limit int) ([]MealLog, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT l.id, l.user_id, l.food_id, f.name, l.grams, l.calories, l.protein_g, l.carbs_g, l.fat_g, l.logged_at
		FROM meal_logs l JOIN foods f ON l.food_id = f.id
		WHERE l.user_id = ?
		ORDER BY l.logged_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent meals: %w", err)
	}
	defer rows.Close()

	result := make([]MealLog, 0)
	for rows.Next() {
		var m MealLog
		if err := rows.Scan(&m.ID, &m.UserID, &m.FoodID, &m.FoodName, &m.Grams, &m.Calories, &m.ProteinG, &m.CarbsG, &m.FatG, &m.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan meal log: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meal logs: %w", err)
	}
	return result, nil
}

// DailyNutrition aggregates confirmed meal logs for one UTC date
// ("2006-01-02").
func (s *Store) DailyNutrition(userID, date string) (*NutritionSummary, error) {
	row := s.db.QueryRow(`
		SELECT COALESCE(SUM(calories), 0), COALESCE(SUM(protein_g), 0),
		       COALESCE(SUM(carbs_g), 0), COALESCE(SUM(fat_g), 0), COUNT(*)
		FROM meal_logs
		WHERE user_id = ? AND substr(logged_at, 1, 10) = ?
	`, userID, date)

	summary := NutritionSummary{Date: date}
	if err := row.Scan(&summary.Calories, &summary.ProteinG, &summary.CarbsG, &summary.FatG, &summary.Meals); err != nil {
		return nil, fmt.Errorf("daily nutrition: %w", err)
	}
	return &summary, nil
}

func (s *Store) ActivityHistory(userID string, limit int) ([]ActivityLog, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT l.id, l.user_id, l.activity_id, a.name, l.duration_min, l.calories_burned, l.logged_at
		FROM activity_logs l JOIN activities a ON l.activity_id = a.id
		WHERE l.user_id = ?
		ORDER BY l.logged_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("activity history: %w", err)
	}
	defer rows.Close()

	result := make([]ActivityLog, 0)
	for rows.Next() {
		var a ActivityLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.ActivityID, &a.ActivityName, &a.DurationMin, &a.CaloriesBurned, &a.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity logs: %w", err)
	}
	return result, nil
}

func scanFoods(rows *sql.Rows) ([]Food, error) {
	result := make([]Food, 0)
	for rows.Next() {
		var f Food
		if err := rows.Scan(&f.ID, &f.Name, &f.ServingGrams, &f.CaloriesPer100g, &f.ProteinPer100g, &f.CarbsPer100g, &f.FatPer100g); err != nil {
			return nil, fmt.Errorf("scan food: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foods: %w", err)
	}
	return result, nil
}
