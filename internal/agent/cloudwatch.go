package agent

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type cloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher pushes per-fetch datapoints to CloudWatch, dimensioned
// by node.
type CloudWatchPublisher struct {
	client    cloudWatchAPI
	namespace string
	node      string
}

// NewCloudWatchPublisher creates a publisher writing to namespace.
func NewCloudWatchPublisher(client *cloudwatch.Client, namespace, node string) *CloudWatchPublisher {
	return &CloudWatchPublisher{client: client, namespace: namespace, node: node}
}

// Publish sends one batch of datapoints describing o.
func (p *CloudWatchPublisher) Publish(ctx context.Context, o Outcome) error {
	dims := []cwtypes.Dimension{{Name: aws.String("NodeName"), Value: aws.String(p.node)}}
	ts := aws.Time(o.At)

	datum := func(name string, value float64, unit cwtypes.StandardUnit) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: dims,
			Timestamp:  ts,
			Value:      aws.Float64(value),
			Unit:       unit,
		}
	}

	data := []cwtypes.MetricDatum{
		datum("remoteconf_fetch_duration_ms", float64(o.Duration.Milliseconds()), cwtypes.StandardUnitMilliseconds),
		datum("remoteconf_fetch_errors", boolValue(o.Err != nil), cwtypes.StandardUnitCount),
	}
	if o.Err == nil {
		data = append(data,
			datum("remoteconf_fallbacks", boolValue(o.Result.RemoteErr != nil), cwtypes.StandardUnitCount),
			datum("remoteconf_updates", boolValue(o.Result.Updated), cwtypes.StandardUnitCount),
			datum("remoteconf_config_version", float64(o.Result.Version), cwtypes.StandardUnitNone),
		)
	}

	if _, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}); err != nil {
		return fmt.Errorf("putting metric data to %s: %w", p.namespace, err)
	}
	return nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
