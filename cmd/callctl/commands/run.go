package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mmutlucod/realtime-call-app/internal/adapters/rtc"
	"github.com/mmutlucod/realtime-call-app/internal/app/phone"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

//NewListCmd returns the command that prints who is available to call
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Join, print the available identities and exit",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().Duration("wait", 5*time.Second, "How long to wait for the presence list")
	return cmd
}

//NewCallCmd returns the command that places a call
func NewCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <identity>",
		Short: "Call an identity and stay on the line until either side hangs up",
		Args:  cobra.ExactArgs(1),
		RunE:  runCall,
	}
	cmd.Flags().Bool("video", false, "Place a video call")
	return cmd
}

//NewAnswerCmd returns the command that waits for calls
func NewAnswerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Stay online and pick up incoming calls",
		Args:  cobra.NoArgs,
		RunE:  runAnswer,
	}
	cmd.Flags().Bool("reject", false, "Reject incoming calls instead of accepting them")
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, _config)
	if err != nil {
		return err
	}
	defer s.Close()

	wait, _ := cmd.Flags().GetDuration("wait")
	lists := make(chan []domain.Identity, 1)
	off := s.phone.OnPresence(func(ids []domain.Identity) {
		select {
		case lists <- ids:
		default:
		}
	})
	defer off()

	var ids []domain.Identity
	select {
	case ids = <-lists:
	case <-time.After(wait):
		return errors.New("no presence list received")
	case <-ctx.Done():
		return ctx.Err()
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\n", id.ID, id.DisplayName)
	}
	return w.Flush()
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, _config)
	if err != nil {
		return err
	}
	defer s.Close()

	ended := make(chan string, 1)
	s.phone.OnEnded(func(reason string) {
		select {
		case ended <- reason:
		default:
		}
	})
	watch(s.phone)

	ct := domain.CallAudio
	if _config.Video {
		ct = domain.CallVideo
	}
	if err := s.phone.Call(ctx, domain.IdentityID(args[0]), ct); err != nil {
		return err
	}

	select {
	case reason := <-ended:
		log.Info().Str("module", "callctl").Str("reason", reason).Msg("call ended")
		if reason != "ended" {
			return fmt.Errorf("call %s", reason)
		}
		return nil
	case <-s.sig.Done():
		return errors.New("signaling connection lost")
	case <-ctx.Done():
		_ = s.phone.Hangup()
		return nil
	}
}

func runAnswer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, _config)
	if err != nil {
		return err
	}
	defer s.Close()

	reject, _ := cmd.Flags().GetBool("reject")
	s.phone.OnIncoming(func(in phone.Incoming) {
		logger := log.With().Str("module", "callctl").Str("from", string(in.From)).Str("call_type", string(in.CallType)).Logger()
		if reject {
			logger.Info().Msg("rejecting")
			_ = s.phone.Reject()
			return
		}
		logger.Info().Msg("answering")
		if err := s.phone.Accept(ctx); err != nil {
			logger.Error().Err(err).Msg("accept failed")
		}
	})
	s.phone.OnEnded(func(reason string) {
		log.Info().Str("module", "callctl").Str("reason", reason).Msg("call ended")
	})
	watch(s.phone)

	log.Info().Str("module", "callctl").Str("id", _config.ID).Msg("waiting for calls")
	select {
	case <-s.sig.Done():
		return errors.New("signaling connection lost")
	case <-ctx.Done():
		return nil
	}
}

// watch logs status changes and the remote media of each call.
func watch(p *phone.Phone) {
	logger := log.With().Str("module", "callctl").Logger()
	p.OnStatus(func(st phone.Status) {
		logger.Info().Str("status", st.String()).Msg("status")
	})
	p.OnRemoteStream(func(rs *rtc.RemoteStream) {
		if rs == nil {
			return
		}
		logger.Info().Str("stream", rs.ID).Int("tracks", len(rs.Tracks())).Msg("receiving remote media")
	})
}
