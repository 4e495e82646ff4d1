package peer

import (
	"context"
	"errors"
	"testing"

	"medea/internal/id"
	"medea/internal/media"
	"medea/internal/turn"
)

type fakeTurnService struct {
	failCreate bool
	created    int
	deleted    []*turn.IceUser
}

func (f *fakeTurnService) Create(ctx context.Context, peerID id.PeerID, roomID id.RoomID, policy turn.UnreachablePolicy) (*turn.IceUser, error) {
	if f.failCreate {
		return nil, errors.New("turn unreachable")
	}
	f.created++
	return &turn.IceUser{PeerID: peerID, Username: "u", Password: "p"}, nil
}

func (f *fakeTurnService) Delete(ctx context.Context, users ...*turn.IceUser) error {
	f.deleted = append(f.deleted, users...)
	return nil
}

func TestConnectEndpointsAllocatesNewPair(t *testing.T) {
	turnSvc := &fakeTurnService{}
	repo := NewRepository("room1", turnSvc)

	result, err := repo.ConnectEndpoints(
		context.Background(),
		PublishSpec{MemberID: "alice", EndpointID: "pub", AudioPolicy: media.PublishPolicyOptional, VideoPolicy: media.PublishPolicyOptional},
		PlaySpec{MemberID: "bob", EndpointID: "play"},
		nil,
	)
	if err != nil {
		t.Fatalf("ConnectEndpoints: %v", err)
	}
	if !result.Created {
		t.Fatal("expected a freshly created pair")
	}
	if turnSvc.created != 2 {
		t.Fatalf("expected 2 ice users provisioned, got %d", turnSvc.created)
	}

	publisher, err := repo.GetByID(result.PublisherPeerID)
	if err != nil {
		t.Fatalf("GetByID(publisher): %v", err)
	}
	// ConnectEndpoints only schedules the tracks; committing applies them.
	publisher.CommitScheduledChanges()
	if len(publisher.Senders) != 3 {
		t.Fatalf("publisher has %d sender tracks, want 3 (audio + 2 video)", len(publisher.Senders))
	}

	player, err := repo.GetByID(result.PlayerPeerID)
	if err != nil {
		t.Fatalf("GetByID(player): %v", err)
	}
	player.CommitScheduledChanges()
	if len(player.Receivers) != 3 {
		t.Fatalf("player has %d receiver tracks, want 3", len(player.Receivers))
	}
}

func TestConnectEndpointsReusesExistingPair(t *testing.T) {
	turnSvc := &fakeTurnService{}
	repo := NewRepository("room1", turnSvc)

	first, err := repo.ConnectEndpoints(
		context.Background(),
		PublishSpec{MemberID: "alice", EndpointID: "pub1", AudioPolicy: media.PublishPolicyOptional, VideoPolicy: media.PublishPolicyDisabled},
		PlaySpec{MemberID: "bob", EndpointID: "play1"},
		nil,
	)
	if err != nil {
		t.Fatalf("ConnectEndpoints: %v", err)
	}

	second, err := repo.ConnectEndpoints(
		context.Background(),
		PublishSpec{MemberID: "alice", EndpointID: "pub2", AudioPolicy: media.PublishPolicyDisabled, VideoPolicy: media.PublishPolicyOptional},
		PlaySpec{MemberID: "bob", EndpointID: "play2"},
		nil,
	)
	if err != nil {
		t.Fatalf("second ConnectEndpoints: %v", err)
	}

	if second.Created {
		t.Fatal("expected second ConnectEndpoints between the same members to reuse the pair")
	}
	if second.PublisherPeerID != first.PublisherPeerID || second.PlayerPeerID != first.PlayerPeerID {
		t.Fatalf("reused pair has different peer ids: first=%+v second=%+v", first, second)
	}
	if turnSvc.created != 2 {
		t.Fatalf("expected turn credentials provisioned only once per peer, got %d creates", turnSvc.created)
	}
}

func TestConnectEndpointsDiscardsPairOnTurnFailure(t *testing.T) {
	turnSvc := &fakeTurnService{failCreate: true}
	repo := NewRepository("room1", turnSvc)

	_, err := repo.ConnectEndpoints(
		context.Background(),
		PublishSpec{MemberID: "alice", EndpointID: "pub", AudioPolicy: media.PublishPolicyOptional, VideoPolicy: media.PublishPolicyDisabled},
		PlaySpec{MemberID: "bob", EndpointID: "play"},
		nil,
	)
	if err == nil {
		t.Fatal("expected ConnectEndpoints to fail when TURN provisioning fails")
	}

	if _, _, ok := repo.GetByMembersIDs("alice", "bob"); ok {
		t.Fatal("expected no pair to be recorded after a TURN failure")
	}
	if len(repo.peers) != 0 {
		t.Fatalf("expected no peers inserted after a TURN failure, got %d", len(repo.peers))
	}
}

func TestRemovePeersReleasesIceUsersAndPartner(t *testing.T) {
	turnSvc := &fakeTurnService{}
	repo := NewRepository("room1", turnSvc)

	result, err := repo.ConnectEndpoints(
		context.Background(),
		PublishSpec{MemberID: "alice", EndpointID: "pub", AudioPolicy: media.PublishPolicyOptional, VideoPolicy: media.PublishPolicyDisabled},
		PlaySpec{MemberID: "bob", EndpointID: "play"},
		nil,
	)
	if err != nil {
		t.Fatalf("ConnectEndpoints: %v", err)
	}

	removed, err := repo.RemovePeers(context.Background(), []id.PeerID{result.PublisherPeerID})
	if err != nil {
		t.Fatalf("RemovePeers: %v", err)
	}

	if len(removed["alice"]) != 1 || len(removed["bob"]) != 1 {
		t.Fatalf("expected both members' peers reported removed, got %+v", removed)
	}
	if len(turnSvc.deleted) != 2 {
		t.Fatalf("expected 2 ice users released, got %d", len(turnSvc.deleted))
	}
	if len(repo.peers) != 0 {
		t.Fatalf("expected repository empty after removing the only pair, got %d peers", len(repo.peers))
	}
	if peers := repo.PeersForEndpoint("pub"); len(peers) != 0 {
		t.Fatalf("expected endpoint index cleared, got %v", peers)
	}
}

func TestRemovePeersRelatedToMemberRemovesAllOwnedPairs(t *testing.T) {
	turnSvc := &fakeTurnService{}
	repo := NewRepository("room1", turnSvc)

	if _, err := repo.ConnectEndpoints(
		context.Background(),
		PublishSpec{MemberID: "alice", EndpointID: "pub1", AudioPolicy: media.PublishPolicyOptional, VideoPolicy: media.PublishPolicyDisabled},
		PlaySpec{MemberID: "bob", EndpointID: "play1"},
		nil,
	); err != nil {
		t.Fatalf("ConnectEndpoints: %v", err)
	}
	if _, err := repo.ConnectEndpoints(
		context.Background(),
		PublishSpec{MemberID: "alice", EndpointID: "pub2", AudioPolicy: media.PublishPolicyOptional, VideoPolicy: media.PublishPolicyDisabled},
		PlaySpec{MemberID: "carol", EndpointID: "play2"},
		nil,
	); err != nil {
		t.Fatalf("ConnectEndpoints: %v", err)
	}

	removed, err := repo.RemovePeersRelatedToMember(context.Background(), "alice")
	if err != nil {
		t.Fatalf("RemovePeersRelatedToMember: %v", err)
	}

	if len(removed) != 3 {
		t.Fatalf("expected alice, bob and carol all reported, got %+v", removed)
	}
	if len(repo.peers) != 0 {
		t.Fatalf("expected all peers removed, got %d", len(repo.peers))
	}
}
