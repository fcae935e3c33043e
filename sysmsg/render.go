package sysmsg

import (
	"fmt"
	"strings"

	"chatsync/models"
)

// Render maps a system event plus the viewer's identity to display text.
// Pure and table-driven: same inputs always produce the same string, and
// any actor or target matching the viewer is rendered in the "you" form.
// All targets of a multi-target event are rendered, joined with commas.
func Render(ev models.SystemEvent, viewerID string) string {
	r, ok := renderers[ev.Action]
	if !ok {
		return fmt.Sprintf("%s updated the group", actorName(ev, viewerID))
	}
	return r(ev, viewerID)
}

type renderFunc func(models.SystemEvent, string) string

var renderers = map[models.SystemAction]renderFunc{
	models.ActionUserJoined: func(ev models.SystemEvent, viewerID string) string {
		return fmt.Sprintf("%s joined the group", actorName(ev, viewerID))
	},
	models.ActionUserLeft: func(ev models.SystemEvent, viewerID string) string {
		return fmt.Sprintf("%s left the group", actorName(ev, viewerID))
	},
	models.ActionRenamed: func(ev models.SystemEvent, viewerID string) string {
		return fmt.Sprintf("%s renamed the group to %q", actorName(ev, viewerID), ev.NewName)
	},
	models.ActionMemberAdded: func(ev models.SystemEvent, viewerID string) string {
		if len(ev.Targets) == 0 {
			return fmt.Sprintf("%s added members to the group", actorName(ev, viewerID))
		}
		return fmt.Sprintf("%s added %s to the group", actorName(ev, viewerID), targetNames(ev, viewerID))
	},
	models.ActionMemberRemoved: func(ev models.SystemEvent, viewerID string) string {
		if len(ev.Targets) == 0 {
			return fmt.Sprintf("%s removed a member from the group", actorName(ev, viewerID))
		}
		return fmt.Sprintf("%s removed %s from the group", actorName(ev, viewerID), targetNames(ev, viewerID))
	},
	models.ActionAdminGranted: func(ev models.SystemEvent, viewerID string) string {
		if len(ev.Targets) == 0 {
			return fmt.Sprintf("%s transferred group admin", actorName(ev, viewerID))
		}
		return fmt.Sprintf("%s made %s a group admin", actorName(ev, viewerID), targetNames(ev, viewerID))
	},
	models.ActionAvatarUpdated: func(ev models.SystemEvent, viewerID string) string {
		return fmt.Sprintf("%s changed the group photo", actorName(ev, viewerID))
	},
}

func actorName(ev models.SystemEvent, viewerID string) string {
	if ev.Actor.ID == viewerID {
		return "You"
	}
	return ev.Actor.Name
}

func targetNames(ev models.SystemEvent, viewerID string) string {
	names := make([]string, 0, len(ev.Targets))
	for _, t := range ev.Targets {
		if t.ID == viewerID {
			names = append(names, "you")
			continue
		}
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}
