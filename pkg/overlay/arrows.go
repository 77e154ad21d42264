package overlay

import "github.com/vanderheijden86/boardsync/pkg/model"

// ArrowSet holds every arrow drawn on the board. User arrows persist until
// cleared; the suggestion and threat are replaced on each engine update;
// ghost arrows live only while a line is hovered.
//
// ArrowSet is a value type. Methods return a modified copy so a published
// View never shares slices with the controller.
type ArrowSet struct {
	User       []model.Arrow
	Suggestion *model.Arrow
	Threat     *model.Arrow
	Ghosts     []model.Arrow
}

// ToggleUser adds a user arrow, or removes it if the same arrow is present.
// Zero-length arrows are ignored.
func (s ArrowSet) ToggleUser(from, to model.Coord) ArrowSet {
	if from == to || !from.Valid() || !to.Valid() {
		return s
	}
	out := s.clone()
	for i, a := range out.User {
		if a.From == from && a.To == to {
			out.User = append(out.User[:i], out.User[i+1:]...)
			return out
		}
	}
	out.User = append(out.User, model.Arrow{From: from, To: to, Color: ColorUser, Kind: model.ArrowUser})
	return out
}

// ClearUser removes all user arrows.
func (s ArrowSet) ClearUser() ArrowSet {
	out := s.clone()
	out.User = nil
	return out
}

// WithSuggestion replaces the suggestion arrow.
func (s ArrowSet) WithSuggestion(a *model.Arrow) ArrowSet {
	out := s.clone()
	out.Suggestion = copyArrow(a)
	return out
}

// WithThreat replaces the threat arrow.
func (s ArrowSet) WithThreat(a *model.Arrow) ArrowSet {
	out := s.clone()
	out.Threat = copyArrow(a)
	return out
}

// WithGhosts replaces the ghost arrows.
func (s ArrowSet) WithGhosts(arrows []model.Arrow) ArrowSet {
	out := s.clone()
	out.Ghosts = append([]model.Arrow(nil), arrows...)
	return out
}

// ClearEngine drops the suggestion, threat and ghost arrows.
func (s ArrowSet) ClearEngine() ArrowSet {
	out := s.clone()
	out.Suggestion, out.Threat, out.Ghosts = nil, nil, nil
	return out
}

// All returns the arrows in draw order: user, suggestion, threat, ghosts.
// Suggestion and threat are filtered by the show flags.
func (s ArrowSet) All(showSuggestion, showThreat bool) []model.Arrow {
	out := make([]model.Arrow, 0, len(s.User)+len(s.Ghosts)+2)
	out = append(out, s.User...)
	if showSuggestion && s.Suggestion != nil {
		out = append(out, *s.Suggestion)
	}
	if showThreat && s.Threat != nil {
		out = append(out, *s.Threat)
	}
	return append(out, s.Ghosts...)
}

func (s ArrowSet) clone() ArrowSet {
	return ArrowSet{
		User:       append([]model.Arrow(nil), s.User...),
		Suggestion: copyArrow(s.Suggestion),
		Threat:     copyArrow(s.Threat),
		Ghosts:     append([]model.Arrow(nil), s.Ghosts...),
	}
}

func copyArrow(a *model.Arrow) *model.Arrow {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
