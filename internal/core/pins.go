package core

import "entitysync/pkg/domain"

// PartitionPinned splits projects into those listed in pins and the rest,
// keeping the order of projects in both halves.
func PartitionPinned(projects, pins domain.Relation) (pinned, recent []RelationItem) {
	pinnedIDs := make(map[string]struct{}, len(pins.Items))
	for _, pin := range pins.Items {
		pinnedIDs[pin.ID] = struct{}{}
	}
	pinned = make([]RelationItem, 0, len(pins.Items))
	recent = make([]RelationItem, 0, len(projects.Items))
	for _, project := range projects.Items {
		if _, ok := pinnedIDs[project.ID]; ok {
			pinned = append(pinned, project.Clone())
			continue
		}
		recent = append(recent, project.Clone())
	}
	return pinned, recent
}
