// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package config resolves secret references in connector and service settings.

# Secret References

A setting whose value has the form

	aws-secret://<secret-arn>#<key>

is replaced with the named key of the JSON secret stored in AWS Secrets
Manager. Without a #key fragment the whole secret string is used. Any other
value is returned unchanged.

	resolver := config.NewResolver(manager)
	dsn, err := resolver.Resolve(ctx, os.Getenv("HISTORY_DSN"))

# Secret Managers

  - AWSSecretsManager: AWS Secrets Manager with a TTL cache
  - LocalSecretsManager: in-memory secrets for development and tests
  - EnvSecretsManager: credentials read from PREFIX_FIELD environment variables
*/
package config
