// Package ros bridges the navigator and ROS: message shapes for the topics the navigation node
// speaks, and replay of recorded rosbags.
package ros

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"time"

	"github.com/edaniels/gobag/rosbag"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/dronenav/services/navigation"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()

	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to create ros bag, error")
	}

	return rb, nil
}

// MessagesForTopics returns the raw messages recorded on each of the given topics. Topics with
// no messages map to an empty slice.
func MessagesForTopics(rb *rosbag.RosBag, topics ...string) (map[string][]map[string]interface{}, error) {
	wanted := make(map[string]bool, len(topics))
	for _, topic := range topics {
		wanted[topic] = true
	}
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { return wanted[t] },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	out := make(map[string][]map[string]interface{}, len(topics))
	for _, topic := range topics {
		all := []map[string]interface{}{}
		msgs := rb.TopicsAsJSON[topic]
		if msgs == nil {
			out[topic] = all
			continue
		}
		for {
			data, err := msgs.ReadBytes('\n')
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, err
			}
			message := map[string]interface{}{}
			if err := json.Unmarshal(data, &message); err != nil {
				return nil, err
			}
			all = append(all, message)
		}
		out[topic] = all
	}
	return out, nil
}

// AllMessagesForTopic returns all messages for a specific topic in the ros bag.
func AllMessagesForTopic(rb *rosbag.RosBag, topic string) ([]map[string]interface{}, error) {
	byTopic, err := MessagesForTopics(rb, topic)
	if err != nil {
		return nil, err
	}
	if len(byTopic[topic]) == 0 {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}
	return byTopic[topic], nil
}

// BagMessage is a single recorded message: when it was recorded and its decoded payload.
type BagMessage[T any] struct {
	Meta Time
	Data T
}

// DecodeMessages decodes raw messages, as returned by MessagesForTopics, into typed ones.
func DecodeMessages[T any](raw []map[string]interface{}) ([]BagMessage[T], error) {
	out := make([]BagMessage[T], 0, len(raw))
	for i, message := range raw {
		var decoded BagMessage[T]
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			Result:           &decoded,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(message); err != nil {
			return nil, errors.Wrapf(err, "decoding message %d", i)
		}
		out = append(out, decoded)
	}
	return out, nil
}

// Event is one input to the navigator recovered from a bag. Exactly one of Pose and Trajectory
// is set.
type Event struct {
	Time       time.Time
	Topic      string
	Pose       *navigation.PoseEstimate
	Trajectory *navigation.Trajectory
}

// ReplayEvents extracts the pose and waypoint messages from a bag, in recording order.
func ReplayEvents(rb *rosbag.RosBag) ([]Event, error) {
	byTopic, err := MessagesForTopics(rb, TopicPose, TopicWaypoints)
	if err != nil {
		return nil, err
	}
	poses, err := DecodeMessages[PoseStamped](byTopic[TopicPose])
	if err != nil {
		return nil, errors.Wrap(err, TopicPose)
	}
	trajectories, err := DecodeMessages[MultiDOFJointTrajectory](byTopic[TopicWaypoints])
	if err != nil {
		return nil, errors.Wrap(err, TopicWaypoints)
	}
	if len(trajectories) == 0 {
		return nil, errors.Errorf("no messages for topic %s", TopicWaypoints)
	}

	events := make([]Event, 0, len(poses)+len(trajectories))
	for _, msg := range trajectories {
		traj := msg.Data.ToTrajectory()
		events = append(events, Event{Time: recordedAt(msg.Meta, msg.Data.Header), Topic: TopicWaypoints, Trajectory: &traj})
	}
	for _, msg := range poses {
		pose := msg.Data.ToPoseEstimate()
		events = append(events, Event{Time: recordedAt(msg.Meta, msg.Data.Header), Topic: TopicPose, Pose: &pose})
	}
	SortEvents(events)
	return events, nil
}

// SortEvents orders events by time. Trajectories sort ahead of poses recorded at the same
// instant so the pose is tracked against the newest waypoints.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Time.Equal(events[j].Time) {
			return events[i].Time.Before(events[j].Time)
		}
		return events[i].Trajectory != nil && events[j].Trajectory == nil
	})
}

func recordedAt(meta Time, header Header) time.Time {
	if meta != (Time{}) {
		return meta.Time()
	}
	return header.Stamp.Time()
}
