package controlapi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"medea/internal/id"
	"medea/internal/localuri"
	"medea/internal/member"
	"medea/internal/room"
)

// RoomService is the façade the transport and the static-spec loader both
// call into: it owns URI dispatch (which element kind a local:// URI
// names) and translates declarative specs into live room/member/endpoint
// mutations on the right Room actor.
type RoomService struct {
	rooms *RoomRepository
}

func NewRoomService(rooms *RoomRepository) *RoomService {
	return &RoomService{rooms: rooms}
}

// LoadStaticSpecs reads every *.yaml/*.yml file in dir as a RoomSpec and
// creates the room it describes, the way the original deployment seeded
// fixed rooms from a specs/ directory mounted into the container. Missing
// dir is not an error: static specs are optional.
func (s *RoomService) LoadStaticSpecs(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("control api: reading static spec dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("control api: reading %s: %w", entry.Name(), err)
		}
		var spec RoomSpec
		if err := yaml.Unmarshal(raw, &spec); err != nil {
			return fmt.Errorf("control api: parsing %s: %w", entry.Name(), err)
		}
		if err := s.CreateRoom(ctx, spec); err != nil && err != ErrRoomAlreadyExists {
			return fmt.Errorf("control api: loading %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *RoomService) CreateRoom(ctx context.Context, spec RoomSpec) error {
	rm, err := s.rooms.Create(spec.ID)
	if err != nil {
		return err
	}
	for memberID, memberSpec := range spec.Pipeline {
		if err := s.createMemberOn(ctx, rm, spec.ID, id.MemberID(memberID), memberSpec); err != nil {
			return err
		}
	}
	return nil
}

func (s *RoomService) CreateMember(ctx context.Context, roomID id.RoomID, memberID id.MemberID, spec MemberSpec) error {
	rm, ok := s.rooms.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return s.createMemberOn(ctx, rm, roomID, memberID, spec)
}

func (s *RoomService) createMemberOn(ctx context.Context, rm *room.Room, roomID id.RoomID, memberID id.MemberID, spec MemberSpec) error {
	mem := member.New(memberID, roomID, spec.Credentials)
	if err := rm.CreateMember(mem); err != nil {
		return err
	}
	for endpointID, epSpec := range spec.Pipeline {
		if err := s.createEndpointOn(ctx, rm, mem.ID, id.EndpointID(endpointID), epSpec); err != nil {
			return err
		}
	}
	return nil
}

func (s *RoomService) CreateEndpoint(ctx context.Context, roomID id.RoomID, memberID id.MemberID, endpointID id.EndpointID, spec WebRtcEndpointSpec) error {
	rm, ok := s.rooms.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return s.createEndpointOn(ctx, rm, memberID, endpointID, spec)
}

func (s *RoomService) createEndpointOn(ctx context.Context, rm *room.Room, memberID id.MemberID, endpointID id.EndpointID, spec WebRtcEndpointSpec) error {
	ep := &member.Endpoint{ID: endpointID, Owner: memberID}
	switch spec.Kind {
	case EndpointKindPublish:
		ep.Kind = member.EndpointPublish
		ep.ForceRelay = spec.ForceRelay
		if spec.AudioSettings != nil {
			ep.AudioPolicy = parsePublishPolicy(spec.AudioSettings.PublishPolicy)
		}
		if spec.VideoSettings != nil {
			ep.VideoPolicy = parsePublishPolicy(spec.VideoSettings.PublishPolicy)
		}
	case EndpointKindPlay:
		ep.Kind = member.EndpointPlay
		if _, err := localuri.Parse(spec.Src); err != nil {
			return fmt.Errorf("control api: parsing play endpoint src: %w", err)
		}
		ep.Src = spec.Src
	default:
		return fmt.Errorf("control api: unknown endpoint kind %q", spec.Kind)
	}
	return rm.CreateEndpoint(ctx, ep)
}

// Apply replaces the room named by uri wholesale: the room is removed from
// the repository, then created again from spec, rather than merged field by
// field. Only room-scope URIs are accepted; member- and endpoint-scope URIs
// are rejected.
func (s *RoomService) Apply(ctx context.Context, uri string, spec RoomSpec) error {
	parsed, err := localuri.Parse(uri)
	if err != nil {
		return err
	}
	if parsed.Depth != 1 {
		return fmt.Errorf("control api: apply is only supported at room scope")
	}
	s.rooms.Delete(parsed.RoomID)
	return s.CreateRoom(ctx, spec)
}

// Delete removes every element named by uris. All uris must share the
// same RoomID (the Rust implementation's NotSameRoomIds precondition);
// mixed-room batches are rejected outright rather than partially applied.
func (s *RoomService) Delete(ctx context.Context, uris []string) error {
	parsed := make([]localuri.URI, 0, len(uris))
	for _, raw := range uris {
		p, err := localuri.Parse(raw)
		if err != nil {
			return err
		}
		parsed = append(parsed, p)
	}
	if len(parsed) == 0 {
		return nil
	}
	roomID := parsed[0].RoomID
	for _, p := range parsed[1:] {
		if p.RoomID != roomID {
			return ErrNotSameRoomIDs
		}
	}

	rm, ok := s.rooms.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	for _, p := range parsed {
		switch p.Depth {
		case 1:
			if _, ok := s.rooms.Delete(p.RoomID); !ok {
				return ErrRoomNotFound
			}
			return rm.Close(ctx)
		case 2:
			if err := rm.DeleteMember(ctx, p.MemberID); err != nil {
				return err
			}
		case 3:
			if err := rm.DeleteEndpoint(ctx, p.MemberID, p.EndpointID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get serializes the element named by uri back into its spec DTO shape:
// a RoomSpec, MemberSpec or WebRtcEndpointSpec depending on uri's depth.
// The returned value is always one of those three types.
func (s *RoomService) Get(ctx context.Context, uri string) (any, error) {
	parsed, err := localuri.Parse(uri)
	if err != nil {
		return nil, err
	}
	rm, ok := s.rooms.Get(parsed.RoomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	members, err := rm.Snapshot()
	if err != nil {
		return nil, err
	}
	roomSpec := roomSnapshotToSpec(parsed.RoomID, members)
	if parsed.Depth == 1 {
		return roomSpec, nil
	}

	memberSpec, ok := roomSpec.Pipeline[string(parsed.MemberID)]
	if !ok {
		return nil, member.ErrMemberNotFound
	}
	if parsed.Depth == 2 {
		return memberSpec, nil
	}

	endpointSpec, ok := memberSpec.Pipeline[string(parsed.EndpointID)]
	if !ok {
		return nil, ErrEndpointNotFound
	}
	return endpointSpec, nil
}

func roomSnapshotToSpec(roomID id.RoomID, members []member.MemberSnapshot) RoomSpec {
	pipeline := make(map[string]MemberSpec, len(members))
	for _, mem := range members {
		pipeline[string(mem.ID)] = memberSnapshotToSpec(mem)
	}
	return RoomSpec{ID: roomID, Pipeline: pipeline}
}

func memberSnapshotToSpec(mem member.MemberSnapshot) MemberSpec {
	pipeline := make(map[string]WebRtcEndpointSpec, len(mem.Endpoints))
	for _, ep := range mem.Endpoints {
		pipeline[string(ep.ID)] = endpointSnapshotToSpec(ep)
	}
	return MemberSpec{Credentials: mem.Credentials, Pipeline: pipeline}
}

func endpointSnapshotToSpec(ep member.EndpointSnapshot) WebRtcEndpointSpec {
	if ep.Kind == member.EndpointPlay {
		return WebRtcEndpointSpec{Kind: EndpointKindPlay, Src: ep.Src}
	}
	return WebRtcEndpointSpec{
		Kind:          EndpointKindPublish,
		AudioSettings: &PublishPolicySpec{PublishPolicy: publishPolicySpec(ep.AudioPolicy)},
		VideoSettings: &PublishPolicySpec{PublishPolicy: publishPolicySpec(ep.VideoPolicy)},
		ForceRelay:    ep.ForceRelay,
	}
}
