package domain

// Catalog is the normalized, ordered view of a routine's activities. It is
// built once per operation from the parsed activity list so that lookups and
// superset checks do not re-walk the slice.
type Catalog struct {
	activities []Activity
	byID       map[string]int
}

// NewCatalog builds a Catalog preserving the routine's activity order.
func NewCatalog(activities []Activity) Catalog {
	byID := make(map[string]int, len(activities))
	for i, activity := range activities {
		byID[activity.ID] = i
	}
	return Catalog{activities: activities, byID: byID}
}

// Activities returns the ordered activity list.
func (c Catalog) Activities() []Activity {
	return c.activities
}

// Len reports the number of activities.
func (c Catalog) Len() int {
	return len(c.activities)
}

// Get returns the activity with the given id.
func (c Catalog) Get(id string) (Activity, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Activity{}, false
	}
	return c.activities[i], true
}

// IDs returns the ordered activity ids.
func (c Catalog) IDs() []string {
	ids := make([]string, len(c.activities))
	for i, activity := range c.activities {
		ids[i] = activity.ID
	}
	return ids
}

// CoveredBy reports whether every catalog id is present in the completed set.
func (c Catalog) CoveredBy(completedIDs []string) bool {
	if len(c.activities) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(completedIDs))
	for _, id := range completedIDs {
		seen[id] = struct{}{}
	}
	for _, activity := range c.activities {
		if _, ok := seen[activity.ID]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the catalog ids absent from the completed set, in catalog order.
func (c Catalog) Missing(completedIDs []string) []Activity {
	seen := make(map[string]struct{}, len(completedIDs))
	for _, id := range completedIDs {
		seen[id] = struct{}{}
	}
	missing := make([]Activity, 0, len(c.activities))
	for _, activity := range c.activities {
		if _, ok := seen[activity.ID]; !ok {
			missing = append(missing, activity)
		}
	}
	return missing
}

// TotalDurationMin sums the duration of every activity.
func (c Catalog) TotalDurationMin() int {
	total := 0
	for _, activity := range c.activities {
		total += activity.DurationMin
	}
	return total
}
