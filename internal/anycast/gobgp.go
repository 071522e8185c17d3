// Package anycast advertises the DNS listener's VIP over BGP, gated on
// store health, so an unhealthy relay node drops out of the anycast set
// instead of blackholing queries.
package anycast

import (
	"context"
	"fmt"

	api "github.com/osrg/gobgp/v4/api"
	"github.com/osrg/gobgp/v4/pkg/server"
	"github.com/pkarrdns/pkarrdns/internal/log"
	"google.golang.org/protobuf/types/known/anypb"
)

var logger = log.PrefixedLog("anycast")

// BGPSpeaker wraps a GoBGP server with announce/withdraw for /32 VIPs.
type BGPSpeaker struct {
	bgpServer *server.BgpServer
}

// NewBGPSpeaker builds an unstarted speaker.
func NewBGPSpeaker() *BGPSpeaker {
	return &BGPSpeaker{bgpServer: server.NewBgpServer()}
}

// Start launches the BGP server and establishes the peering session.
func (s *BGPSpeaker) Start(ctx context.Context, localASN, peerASN uint32, routerID, peerAddr string) error {
	go s.bgpServer.Serve()

	if err := s.bgpServer.StartBgp(ctx, &api.StartBgpRequest{
		Global: &api.Global{
			Asn:        localASN,
			RouterId:   routerID,
			ListenPort: 179,
		},
	}); err != nil {
		return fmt.Errorf("anycast: start bgp: %w", err)
	}

	if err := s.bgpServer.AddPeer(ctx, &api.AddPeerRequest{
		Peer: &api.Peer{
			Conf: &api.PeerConf{
				NeighborAddress: peerAddr,
				PeerAsn:         peerASN,
			},
		},
	}); err != nil {
		return fmt.Errorf("anycast: add peer: %w", err)
	}

	logger.WithField("local_asn", localASN).
		WithField("peer_asn", peerASN).
		WithField("peer", peerAddr).
		Info("bgp speaker started")
	return nil
}

func vipPath(vip, nextHop string) (*api.Path, error) {
	nlri, err := anypb.New(&api.IPAddressPrefix{Prefix: vip, PrefixLen: 32})
	if err != nil {
		return nil, err
	}
	attr, err := anypb.New(&api.NextHopAttribute{NextHop: nextHop})
	if err != nil {
		return nil, err
	}
	return &api.Path{
		Family: &api.Family{Afi: api.Family_AFI_IP, Safi: api.Family_SAFI_UNICAST},
		Nlri:   nlri,
		Pattrs: []*anypb.Any{attr},
	}, nil
}

// Announce advertises vip as a /32.
func (s *BGPSpeaker) Announce(ctx context.Context, vip string) error {
	path, err := vipPath(vip, "0.0.0.0")
	if err != nil {
		return fmt.Errorf("anycast: build path: %w", err)
	}
	if _, err := s.bgpServer.AddPath(ctx, &api.AddPathRequest{Path: path}); err != nil {
		return fmt.Errorf("anycast: announce %s: %w", vip, err)
	}
	logger.WithField("vip", vip).Info("announced anycast vip")
	return nil
}

// Withdraw removes the vip advertisement.
func (s *BGPSpeaker) Withdraw(ctx context.Context, vip string) error {
	path, err := vipPath(vip, "0.0.0.0")
	if err != nil {
		return fmt.Errorf("anycast: build path: %w", err)
	}
	if err := s.bgpServer.DeletePath(ctx, &api.DeletePathRequest{Path: path}); err != nil {
		return fmt.Errorf("anycast: withdraw %s: %w", vip, err)
	}
	logger.WithField("vip", vip).Warn("withdrew anycast vip")
	return nil
}

// Stop shuts down the BGP server.
func (s *BGPSpeaker) Stop() error {
	return s.bgpServer.StopBgp(context.Background(), &api.StopBgpRequest{})
}
